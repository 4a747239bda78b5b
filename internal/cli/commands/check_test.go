package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCheckWithSchemaDir(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	file := ws.write(t, "account.graphql", oversizedQuery)

	stdout, _, err := execute(t, "--config", ws.config, "check", "--schema-dir", objects, file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "account.graphql:1:65: info [oversized-field]")
	assert.Contains(t, stdout, "account.graphql:1:25: info [oversized-record]")
	assert.Contains(t, stdout, "2 problems in 1 file")

	// Offline metadata is not persisted
	_, statErr := os.Stat(filepath.Join(ws.cacheDir, "objects", "Account.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckAgainstSchemaService(t *testing.T) {
	srv := newSchemaServer(t, accountObject())
	ws := newWorkspace(t, "schema:\n  url: "+srv.URL+"\n  token: secret\n")
	file := ws.write(t, "account.graphql", oversizedQuery)

	stdout, stderr, err := execute(t, "--config", ws.config, "check", file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "2 problems in 1 file")
	assert.NotContains(t, stderr, "NOT AUTHORIZED")

	// Fetched metadata is persisted for the next run
	assert.FileExists(t, filepath.Join(ws.cacheDir, "objects", "Account.json"))
	assert.FileExists(t, filepath.Join(ws.cacheDir, "known-types.json"))
}

func TestCheckWithoutSchemaService(t *testing.T) {
	ws := newWorkspace(t, "")
	file := ws.write(t, "account.graphql", oversizedQuery)

	stdout, stderr, err := execute(t, "--config", ws.config, "check", file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "1 file checked, no problems found")
	assert.Contains(t, stderr, "NOT AUTHORIZED")
}

func TestCheckEmbeddedQueries(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	file := ws.write(t, "src/account.js", "import gql from 'graphql-tag';\n\nexport const QUERY = gql`\n  "+oversizedQuery+"\n`;\n")

	stdout, _, err := execute(t, "--config", ws.config, "check", "--schema-dir", objects, file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "src/account.js:4:67: info [oversized-field]")
}

func TestCheckYAMLFormat(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	file := ws.write(t, "account.graphql", oversizedQuery)
	clean := ws.write(t, "small.graphql", `query { uiapi { query { Account { edges { node { Name { value } } } } } } }`)

	stdout, _, err := execute(t, "--config", ws.config, "check", "--schema-dir", objects, "--format", "yaml", file, clean)
	require.NoError(t, err)

	var reports []fileReport
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 2)

	assert.Equal(t, "account.graphql", reports[0].Path)
	require.Len(t, reports[0].Diagnostics, 2)
	field := reports[0].Diagnostics[0]
	assert.Equal(t, "oversized-field", field.Code)
	assert.Equal(t, "info", field.Severity)
	assert.Equal(t, 1, field.Line)
	assert.Equal(t, 65, field.Column)
	assert.Equal(t, 73, field.EndColumn)

	assert.Equal(t, "small.graphql", reports[1].Path)
	assert.Empty(t, reports[1].Diagnostics)
}

func TestCheckTree(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	file := ws.write(t, "account.graphql", oversizedQuery)

	stdout, _, err := execute(t, "--config", ws.config, "check", "--schema-dir", objects, "--tree", file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "# account.graphql (query 1)")
	assert.Contains(t, stdout, "Account")
	assert.Contains(t, stdout, "Notes__c")
}

func TestCheckSyntaxErrorFails(t *testing.T) {
	ws := newWorkspace(t, "")
	file := ws.write(t, "broken.graphql", "query {")

	stdout, _, err := execute(t, "--config", ws.config, "check", file)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "1 query could not be parsed")
	assert.Contains(t, stdout, "broken.graphql:1:8: error [parse-error]")
}

func TestCheckUnknownFormat(t *testing.T) {
	ws := newWorkspace(t, "")
	file := ws.write(t, "account.graphql", oversizedQuery)

	_, _, err := execute(t, "--config", ws.config, "check", "--format", "json", file)
	assert.ErrorContains(t, err, "unknown format")
}

func TestCheckMissingFile(t *testing.T) {
	ws := newWorkspace(t, "")

	_, _, err := execute(t, "--config", ws.config, "check", "missing.graphql")
	assert.ErrorContains(t, err, "failed to read missing.graphql")
}

func TestCheckRequiresFiles(t *testing.T) {
	_, _, err := execute(t, "check")
	assert.Error(t, err)
}

func TestCheckDirectory(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	ws.write(t, "queries/account.graphql", oversizedQuery)
	ws.write(t, "queries/README.md", "not a query")
	ws.write(t, "node_modules/lib/index.js", "gql`query {`")

	stdout, _, err := execute(t, "--config", ws.config, "check", "--schema-dir", objects, "queries")
	require.NoError(t, err)

	assert.Contains(t, stdout, filepath.Join("queries", "account.graphql")+":1:65: info [oversized-field]")
	assert.Contains(t, stdout, "2 problems in 1 file")
}

func TestCheckEmptyDirectory(t *testing.T) {
	ws := newWorkspace(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(ws.dir, "empty"), 0755))

	_, _, err := execute(t, "--config", ws.config, "check", "empty")
	assert.EqualError(t, err, "no query files found")
}

// syncBuffer is written by the watch loop while the test reads it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCheckWatchRechecksChangedFiles(t *testing.T) {
	ws := newWorkspace(t, "")
	objects := ws.schemaDir(t, accountObject())
	file := ws.write(t, "account.graphql", oversizedQuery)

	cmd := NewRootCommand()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--no-color", "--config", ws.config, "check", "--watch", "--schema-dir", objects, file})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "Watching 1 file for changes")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, stdout.String(), "2 problems in 1 file")

	ws.write(t, "account.graphql", `query { uiapi { query { Account { edges { node { Name { value } } } } } } }`)
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "1 file checked, no problems found")
	}, 5*time.Second, 10*time.Millisecond)

	ws.write(t, "account.graphql", "query {")
	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "1 query could not be parsed")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}
