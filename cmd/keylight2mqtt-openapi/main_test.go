package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGenerate_JSON(t *testing.T) {
	data, err := generate(options{baseURL: "http://bridge.lan:9124"})
	require.NoError(t, err)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "keylight2mqtt API", doc.Info.Title)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "http://bridge.lan:9124", doc.Servers[0].URL)
	assert.Contains(t, doc.Paths, "/api/v1/health")
	assert.Contains(t, doc.Paths, "/api/v1/version")
	assert.Contains(t, doc.Paths, "/api/v1/lights")
	assert.Contains(t, doc.Paths, "/api/v1/lights/{serial}")
	assert.NotContains(t, doc.Paths, "/healthz", "hidden routes stay out of the document")
}

func TestGenerate_YAML(t *testing.T) {
	data, err := generate(options{yaml: true})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "openapi")
	assert.Contains(t, doc, "paths")
}

func TestWrite(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, write(&stdout, "", []byte("{}")))
	assert.Equal(t, "{}", stdout.String())

	path := filepath.Join(t.TempDir(), "openapi.json")
	stdout.Reset()
	require.NoError(t, write(&stdout, path, []byte("{}")))
	assert.Empty(t, stdout.String())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}
