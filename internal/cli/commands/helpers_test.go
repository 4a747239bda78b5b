package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/querylint/querylint/internal/metadata"
)

const oversizedQuery = `query { uiapi { query { Account { edges { node { Name { value } Notes__c { value } } } } } } }`

func accountObject() metadata.ObjectInfo {
	return metadata.ObjectInfo{
		APIName: "Account",
		Fields: map[string]metadata.FieldInfo{
			"Name":     {APIName: "Name", DataType: "String", Length: 255},
			"Notes__c": {APIName: "Notes__c", DataType: "TextArea", Length: 131072},
		},
		ChildRelationships: []metadata.ChildRelationship{
			{RelationshipName: "Contacts", ChildObjectAPIName: "Contact", FieldName: "AccountId"},
		},
	}
}

// workspace is an isolated directory with a config file whose cache lives
// inside it
type workspace struct {
	dir      string
	config   string
	cacheDir string
}

func newWorkspace(t *testing.T, extraConfig string) *workspace {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "xdg-cache"))

	ws := &workspace{
		dir:      dir,
		config:   filepath.Join(dir, "querylint.yaml"),
		cacheDir: filepath.Join(dir, "cache"),
	}
	content := "cache:\n  dir: " + ws.cacheDir + "\nlog:\n  level: error\n" + extraConfig
	require.NoError(t, os.WriteFile(ws.config, []byte(content), 0644))
	return ws
}

func (ws *workspace) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(ws.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return name
}

// schemaDir exports object infos as JSON files for --schema-dir
func (ws *workspace) schemaDir(t *testing.T, infos ...metadata.ObjectInfo) string {
	t.Helper()
	dir := filepath.Join(ws.dir, "objects")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, info := range infos {
		data, err := json.Marshal(info)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, info.APIName+".json"), data, 0644))
	}
	return dir
}

// newSchemaServer serves object infos the way the schema service does
func newSchemaServer(t *testing.T, infos ...metadata.ObjectInfo) *httptest.Server {
	t.Helper()

	objects := map[string]metadata.ObjectInfo{}
	for _, info := range infos {
		objects[info.APIName] = info
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/object-info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"objects": objects})
	})
	r.Get("/object-info/{name}", func(w http.ResponseWriter, r *http.Request) {
		info, ok := objects[chi.URLParam(r, "name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(info)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
