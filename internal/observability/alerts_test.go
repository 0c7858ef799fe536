package observability

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

var metricRef = regexp.MustCompile(`odyssey_[a-z_]+`)

// registeredMetrics touches every collector once so Gather reports it.
func registeredMetrics(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/accounts", nil))
	m.ObserveProjectionCache("hit")
	m.Jobs().AddAnomalies("unbalanced_entries", 1)

	families, err := m.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func runbookAnchors(t *testing.T, path string) map[string]bool {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	anchors := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "## ") {
			continue
		}
		anchors[strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(line, "## ")), " ", "-")] = true
	}
	require.NoError(t, scanner.Err())
	return anchors
}

func TestLedgerAlertRules(t *testing.T) {
	root := filepath.Join("..", "..")
	data, err := os.ReadFile(filepath.Join(root, "deploy", "prometheus", "alerts", "ledger.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	group := spec.Groups[0]
	require.Equal(t, "ledger", group.Name)

	metrics := registeredMetrics(t)
	anchors := runbookAnchors(t, filepath.Join(root, "docs", "runbook-ledger.md"))
	severities := map[string]string{
		"HighErrorRate":            "critical",
		"HighLatency":              "warning",
		"LedgerIntegrityViolation": "critical",
	}
	require.Len(t, group.Rules, len(severities))

	for _, rule := range group.Rules {
		severity, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)

		refs := metricRef.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, refs, "%s queries no ledger metric", rule.Alert)
		for _, ref := range refs {
			name := strings.TrimSuffix(ref, "_bucket")
			require.True(t, metrics[name], "%s queries unregistered metric %s", rule.Alert, ref)
		}

		doc, anchor, found := strings.Cut(rule.Annotations["runbook"], "#")
		require.True(t, found, rule.Alert)
		require.Equal(t, "docs/runbook-ledger.md", doc)
		require.True(t, anchors[anchor], "%s links missing runbook section %q", rule.Alert, anchor)
	}
}

func TestIntegrityAlertNamesTheCheck(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml"))
	require.NoError(t, err)
	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))

	for _, rule := range spec.Groups[0].Rules {
		if rule.Alert != "LedgerIntegrityViolation" {
			continue
		}
		require.Contains(t, rule.Expr, "odyssey_finance_anomalies_total")
		require.Contains(t, rule.Annotations["description"], "$labels.check")
		return
	}
	t.Fatal("integrity alert missing")
}
