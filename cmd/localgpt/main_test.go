package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	l := &lineWriter{w: &buf}

	l.update("Hel")
	l.update("Hello")
	l.update("Hello")
	assert.Equal(t, "Hello", buf.String())

	l.reset()
	l.update("Bye")
	assert.Equal(t, "Hello\nBye", buf.String())

	l.update("Other")
	assert.Equal(t, "Hello\nBye\nOther", buf.String())
}

func TestFindAction(t *testing.T) {
	list := []types.Action{{Name: "Summarize"}, {Name: "Fix spelling"}}

	a, ok := findAction(list, "fix spelling")
	assert.True(t, ok)
	assert.Equal(t, "Fix spelling", a.Name)

	_, ok = findAction(list, "missing")
	assert.False(t, ok)
}

func TestReadInput(t *testing.T) {
	got, err := readInput(context.Background(), strings.NewReader("some notes\n"))
	require.NoError(t, err)
	assert.Equal(t, "some notes\n", got)
}

func TestReadInput_Cancelled(t *testing.T) {
	// A pipe with no writer blocks like a terminal waiting for input
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := readInput(ctx, r)
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, types.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("readInput did not return after cancel")
	}
}
