package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("Server started", "port", 9000, "codec", "json")

	line := buf.String()
	assert.Contains(t, line, "[INFO] Server started")
	assert.Contains(t, line, "port=9000")
	assert.Contains(t, line, "codec=json")
	assert.NotContains(t, line, "\033[", "writer output must not be colored")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Warn("Session evicted", "user_id", "00112233445566778899aabbccddeeff")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "Session evicted", record["msg"])
	assert.Equal(t, "00112233445566778899aabbccddeeff", record["user_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("dropped")
	Info("dropped")
	Warn("kept")
	Error("kept too")

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 2, lines)
	assert.NotContains(t, buf.String(), "dropped")
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("before")
	SetLevel("DEBUG")
	Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestInitRejectsBadValues(t *testing.T) {
	assert.Error(t, Init(Config{Level: "LOUD"}))
	assert.Error(t, Init(Config{Format: "xml"}))
}

func TestWithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	child := With("service", "comet")
	child.Info("Listening", "port", 9000)

	assert.Contains(t, buf.String(), "service=comet")
	assert.Contains(t, buf.String(), "port=9000")
}

func TestConcurrentWritesKeepLinesIntact(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("tick", "n", j)
			}
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		assert.Contains(t, line, "[INFO] tick")
	}
}
