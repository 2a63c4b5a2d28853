package local

// SetSyncDir replaces the directory sync step.
func SetSyncDir(s *BlobStore, fn func(dir string) error) {
	s.syncDir = fn
}
