package view

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestLoadParsesEveryPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	for _, name := range []string{"login", "wait", "sticky-header-test", "dashboard", "accounts", "contacts", "leads", "meetings", "deals", "notifications", "tasks", "settings", "not-found"} {
		page, err := engine.Load(context.Background(), name)
		require.NoError(t, err, name)
		var buf bytes.Buffer
		require.NoError(t, page.Execute(&buf, TemplateData{Title: name}), name)
		assert.NotEmpty(t, buf.String(), name)
	}
}

func TestLoadCachesPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	pages := make([]*Page, 8)
	for i := range pages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := engine.Load(context.Background(), "contacts")
			assert.NoError(t, err)
			pages[i] = p
		}(i)
	}
	wg.Wait()
	for _, p := range pages[1:] {
		assert.Same(t, pages[0], p)
	}
}

func TestLoadUnknownPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	_, err = engine.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadAfterRenderStillClones(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "partials/skeleton.html", TemplateData{}))
	_, err = engine.Load(context.Background(), "deals")
	assert.NoError(t, err)
}

func TestTitleFunc(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, engine.Partial(&buf, "partials/role_badge.html", TemplateData{Role: "manager"}))
	assert.True(t, strings.Contains(buf.String(), "Manager"), buf.String())
}
