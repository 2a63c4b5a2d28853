package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/api"
	"github.com/JakeFAU/entity-harvester/internal/app"
	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/config"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/report"
)

type mockApp struct {
	mock.Mock
	registry *harvest.Registry
	cfg      config.Config
}

func (m *mockApp) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) Logger() *zap.Logger         { return zap.NewNop() }
func (m *mockApp) Config() config.Config       { return m.cfg }
func (m *mockApp) Registry() *harvest.Registry { return m.registry }

func (m *mockApp) Harvest(ctx context.Context, entityName string, ids []string) (report.Batch, error) {
	args := m.Called(ctx, entityName, ids)
	return args.Get(0).(report.Batch), args.Error(1)
}

func (m *mockApp) Load(ctx context.Context, entityName string, category entity.Category, latestOnly bool) ([]artifact.Artifact, error) {
	args := m.Called(ctx, entityName, category, latestOnly)
	out, _ := args.Get(0).([]artifact.Artifact)
	return out, args.Error(1)
}

func (m *mockApp) Ingest(ctx context.Context, entityName, path string) (app.Ingested, error) {
	args := m.Called(ctx, entityName, path)
	return args.Get(0).(app.Ingested), args.Error(1)
}

func (m *mockApp) Server() *api.Server {
	return api.NewServer(api.Deps{Catalog: m.registry}, api.Config{})
}

type staticHarvester struct {
	info harvest.Info
}

func (s staticHarvester) Info() harvest.Info { return s.info }

func (s staticHarvester) Harvest(context.Context, string, harvest.Saver) (artifact.Document, error) {
	return artifact.Document{}, nil
}

func newMockApp(t *testing.T) *mockApp {
	t.Helper()
	registry, err := harvest.NewRegistry(
		staticHarvester{info: harvest.Info{ID: "trade_press", Name: "Trade Press", Category: entity.CategoryNews, Enabled: true}},
		staticHarvester{info: harvest.Info{ID: "company_registry", Name: "Company Registry", Category: entity.CategoryGov}},
	)
	require.NoError(t, err)
	m := &mockApp{registry: registry, cfg: config.Config{Server: config.ServerConfig{Port: 8080}}}
	m.On("Close", mock.Anything).Return(nil).Maybe()
	return m
}

// execute runs the root command against m and returns stdout.
func execute(t *testing.T, m *mockApp, args ...string) (string, error) {
	t.Helper()
	factory := func(context.Context, config.Config, *zap.Logger) (App, error) {
		return m, nil
	}
	root, shutdown := newRootCmd(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	shutdown()
	return out.String(), err
}

func sampleBatch() report.Batch {
	return report.Batch{
		Entity:    "riverchain",
		Generated: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		Results: []harvest.Result{
			{HarvesterID: "trade_press", Status: harvest.StatusSucceeded},
			{HarvesterID: "ghost", Status: harvest.StatusFailed, Error: &harvest.ErrorInfo{Kind: harvest.KindUnknownHarvester, Message: "unknown harvester"}},
		},
	}
}

func TestHarvestCommandJSON(t *testing.T) {
	m := newMockApp(t)
	m.On("Harvest", mock.Anything, "RiverChain Ltd", []string{"trade_press", "ghost"}).Return(sampleBatch(), nil).Once()

	out, err := execute(t, m, "harvest", "RiverChain Ltd", "--harvesters", "trade_press,ghost")
	require.NoError(t, err)

	var got report.Batch
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "riverchain", got.Entity)
	require.Len(t, got.Results, 2)
	assert.Equal(t, harvest.KindUnknownHarvester, got.Results[1].Error.Kind)
	m.AssertExpectations(t)
	m.AssertCalled(t, "Close", mock.Anything)
}

func TestHarvestCommandMarkdownToFile(t *testing.T) {
	m := newMockApp(t)
	m.On("Harvest", mock.Anything, "RiverChain", []string(nil)).Return(sampleBatch(), nil).Once()

	path := filepath.Join(t.TempDir(), "report.md")
	out, err := execute(t, m, "harvest", "RiverChain", "--format", "markdown", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Harvest Report: riverchain")
}

func TestHarvestCommandStrictFailsOnFailedResult(t *testing.T) {
	m := newMockApp(t)
	m.On("Harvest", mock.Anything, "RiverChain", mock.Anything).Return(sampleBatch(), nil).Once()

	_, err := execute(t, m, "harvest", "RiverChain", "--strict")
	require.ErrorContains(t, err, "1 of 2 harvesters failed")
	m.AssertNumberOfCalls(t, "Close", 1)
}

func TestHarvestCommandErrors(t *testing.T) {
	m := newMockApp(t)
	m.On("Harvest", mock.Anything, "!!", mock.Anything).Return(report.Batch{}, errors.New("entity name required")).Once()

	_, err := execute(t, m, "harvest", "!!")
	require.ErrorContains(t, err, "entity name required")

	m.On("Harvest", mock.Anything, "RiverChain", mock.Anything).Return(sampleBatch(), nil).Once()
	_, err = execute(t, m, "harvest", "RiverChain", "--format", "xml")
	require.ErrorContains(t, err, "unknown report format")

	_, err = execute(t, m, "harvest")
	require.Error(t, err)
}

func TestLoadCommand(t *testing.T) {
	m := newMockApp(t)
	stored := []artifact.Artifact{{ID: "companies/riverchain/gov/20250314_093000.json"}}
	m.On("Load", mock.Anything, "RiverChain", entity.CategoryGov, true).Return(stored, nil).Once()
	m.On("Load", mock.Anything, "Nobody", entity.CategoryNews, false).Return(nil, nil).Once()

	out, err := execute(t, m, "load", "RiverChain", "--category", "gov")
	require.NoError(t, err)
	assert.Contains(t, out, "companies/riverchain/gov/20250314_093000.json")

	out, err = execute(t, m, "load", "Nobody", "--all")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = execute(t, m, "load", "RiverChain", "--category", "weather")
	require.Error(t, err)
	m.AssertExpectations(t)
}

func TestHarvestersCommand(t *testing.T) {
	m := newMockApp(t)

	out, err := execute(t, m, "harvesters")
	require.NoError(t, err)
	assert.Contains(t, out, "trade_press")
	assert.Contains(t, out, "Enabled")
	assert.Contains(t, out, "company_registry")

	out, err = execute(t, m, "harvesters", "--format", "json")
	require.NoError(t, err)
	var infos []harvest.Info
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "company_registry", infos[0].ID)

	_, err = execute(t, m, "harvesters", "--format", "yaml")
	require.ErrorContains(t, err, "unknown format")
}

func TestIngestCommand(t *testing.T) {
	m := newMockApp(t)
	m.On("Ingest", mock.Anything, "RiverChain", "contractors.csv").Return(app.Ingested{
		Document: "companies/riverchain/document/20250314_093000.json",
		Tables:   []string{"companies/riverchain/document/20250314_093000_01.csv"},
	}, nil).Once()

	out, err := execute(t, m, "ingest", "RiverChain", "contractors.csv")
	require.NoError(t, err)
	var got app.Ingested
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Tables, 1)

	_, err = execute(t, m, "ingest", "RiverChain")
	require.Error(t, err)
}

func TestFactoryErrorIsReported(t *testing.T) {
	root, shutdown := newRootCmd(func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("bucket missing")
	})
	defer shutdown()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"harvesters"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "bucket missing")
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	m := newMockApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, m) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		defer resp.Body.Close() //nolint:errcheck // test probe
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
