package parser

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnana997/cjsexports/pkg/util"
)

// TestConcurrentParsing checks that many goroutines can share one pool.
func TestConcurrentParsing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := NewParserManager(logger)
	defer manager.Close()

	const numGoroutines = 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	errChan := make(chan error, numGoroutines)

	source := []byte("exports.a = 1; module.exports.b = require('./b');")
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			prog, err := manager.ParseProgram(source, "index.js")
			if err != nil {
				errChan <- err
				return
			}
			if prog == nil || len(prog.Body) != 2 {
				errChan <- assert.AnError
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	assert.Empty(t, errs, "No errors should occur during concurrent parsing")

	stats := manager.GetStats()
	maxPoolSize := util.GetOptimalPoolSize()
	assert.LessOrEqual(t, stats.ParsersCreated, maxPoolSize)
	assert.GreaterOrEqual(t, stats.ParsersCreated, 1)
	assert.Equal(t, numGoroutines, stats.ParsesCalled)
}

// TestConcurrentGrammars parses JavaScript, TypeScript and TSX at once.
func TestConcurrentGrammars(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := NewParserManagerWithPoolSize(logger, 2)
	defer manager.Close()

	files := map[string]string{
		"a.js":  "exports.a = 1;",
		"b.ts":  "exports.b = 1 as number;",
		"c.tsx": "exports.c = <div />;",
	}

	const perFile = 20
	var wg sync.WaitGroup
	errChan := make(chan error, perFile*len(files))
	for name, src := range files {
		for i := 0; i < perFile; i++ {
			wg.Add(1)
			go func(name, src string) {
				defer wg.Done()
				if _, err := manager.ParseProgram([]byte(src), name); err != nil {
					errChan <- err
				}
			}(name, src)
		}
	}
	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("unexpected error: %v", err)
	}

	stats := manager.GetStats()
	assert.LessOrEqual(t, stats.ParsersCreated, 2*len(files), "each grammar pool is capped at 2")
	assert.GreaterOrEqual(t, stats.ParsersCreated, len(files))
}
