// Package dashboard renders Grafana dashboards for the heartbeat tables and metrics.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"heartbeat-sim/internal/heartbeat"
)

//go:embed templates/*.tmpl
var templates embed.FS

var templateFiles = []string{
	"heartbeat-greptime.json.tmpl",
	"heartbeat-prometheus.json.tmpl",
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"probeTable":      func() string { return heartbeat.ProbeTableName },
		"escalationTable": func() string { return heartbeat.EscalationTableName },
		"connectionTable": func() string { return heartbeat.ConnectionTableName },
	}
}

// Render writes every dashboard to outDir. Datasource UIDs come from
// GREPTIMEDB_DATASOURCE_UID and PROMETHEUS_DATASOURCE_UID.
func Render(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, name := range templateFiles {
		t, err := template.New(name).Funcs(funcMap()).ParseFS(templates, "templates/"+name)
		if err != nil {
			return written, err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := t.Execute(f, nil); err != nil {
			f.Close()
			os.Remove(outPath)
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
