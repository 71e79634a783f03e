package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainWriter(t *testing.T) {
	t.Run("success line", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewPlain(buf)

		w.Successf("ingested %d files", 3)

		assert.Equal(t, "ok ingested 3 files\n", buf.String())
	})

	t.Run("warning and error lines", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewPlain(buf)

		w.Warning("no catalog yet")
		w.Error("engine missing")

		assert.Contains(t, buf.String(), "warn no catalog yet\n")
		assert.Contains(t, buf.String(), "error engine missing\n")
	})

	t.Run("field line", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewPlain(buf)

		w.Field("chunks", "42")

		assert.Equal(t, "chunks: 42\n", buf.String())
	})

	t.Run("code block is indented", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewPlain(buf)

		w.Code("line one\nline two")

		assert.Equal(t, "\n  line one\n  line two\n\n", buf.String())
	})
}

func TestNewDisablesColorForBuffers(t *testing.T) {
	// A bytes.Buffer is not a terminal, so no escape codes appear
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Header("Sentra Gateway")

	assert.Equal(t, "Sentra Gateway\n", buf.String())
}
