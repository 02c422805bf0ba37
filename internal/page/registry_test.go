package page

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		path    string
		want    Route
		overlay Overlay
		wantErr bool
	}{
		{path: "/accounts", want: Route{Resource: "accounts"}, overlay: OverlayNone},
		{path: "accounts/", want: Route{Resource: "accounts"}, overlay: OverlayNone},
		{path: "/accounts/new", want: Route{Resource: "accounts", ID: "new"}, overlay: OverlayAdd},
		{path: "/features/feature-1", want: Route{Resource: "features", ID: "feature-1"}, overlay: OverlayUpdate},
		{path: "/pushes/a%20b", want: Route{Resource: "pushes", ID: "a b"}, overlay: OverlayUpdate},
		{path: "", wantErr: true},
		{path: "/a/b/c", wantErr: true},
		{path: "/pushes/%zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParseRoute(tt.path)
			if tt.wantErr {
				var env *model.ErrorEnvelope
				require.ErrorAs(t, err, &env)
				assert.Equal(t, model.ErrUnsupportedRoute, env.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.overlay, got.Overlay())
		})
	}
}

func TestRoute_URL(t *testing.T) {
	r := Route{Resource: "pushes", ID: "a b"}
	assert.Equal(t, "/pushes/a%20b", r.Path())
	assert.Equal(t, "/pushes/a%20b?q=x", r.URL(model.SearchOptions{"q": "x"}, 1))
	assert.Equal(t, "/pushes?page=4&q=x", r.List().URL(model.SearchOptions{"q": "x", "page": "9"}, 4))
	assert.Equal(t, "/pushes", r.List().URL(nil, 1))
}

func TestRecorder_drain(t *testing.T) {
	var r Recorder
	r.Push("/a/new")
	r.Replace("/a")

	assert.Equal(t, []HistoryEntry{
		{Op: HistoryPush, URL: "/a/new"},
		{Op: HistoryReplace, URL: "/a"},
	}, r.Drain())
	assert.Empty(t, r.Entries())
}

func testRegistry(api *fakeAccounts) *Registry {
	r := NewRegistry()
	Register[model.Account](r, resource.Accounts(), api)
	Register[model.Project](r, resource.Projects(), nil)
	return r
}

func TestRegistry_names_and_new(t *testing.T) {
	r := testRegistry(newFakeAccounts())

	assert.Equal(t, []string{"accounts", "projects"}, r.Names())
	assert.Equal(t, 2, r.Len())

	p, err := r.New("projects", Deps{})
	require.NoError(t, err)
	assert.Equal(t, "projects", p.Resource())

	_, err = r.New("widgets", Deps{})
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrUnsupportedRoute, env.Code)
}

func TestRegistry_open(t *testing.T) {
	api := newFakeAccounts()
	r := testRegistry(api)
	history := &Recorder{}

	p, err := r.Open(context.Background(), adminCaps, "/accounts/new", "sort=name", Deps{History: history})
	require.NoError(t, err)

	v := p.View(adminCaps)
	assert.Equal(t, "accounts", v.Resource)
	assert.Equal(t, OverlayAdd, v.Overlay)
	assert.Len(t, v.List.Rows, 3)
	assert.Equal(t, []HistoryEntry{{Op: HistoryReplace, URL: "/accounts/new?sort=name"}}, history.Entries())

	_, err = r.Open(context.Background(), adminCaps, "/widgets", "", Deps{})
	require.Error(t, err)
}

func TestRegistry_navigation(t *testing.T) {
	r := testRegistry(newFakeAccounts())
	f := i18n.Static{"resource.accounts": "Account", "resource.projects": "Project"}

	items := r.Navigation(model.CapabilitySet{"accounts:list": true}, f)
	assert.Equal(t, []NavigationItem{{Resource: "accounts", Label: "Account", Route: "/accounts"}}, items)

	items = r.Navigation(model.CapabilitySet{"*": true}, f)
	require.Len(t, items, 2)
	assert.Equal(t, "Project", items[1].Label)

	assert.Empty(t, r.Navigation(model.CapabilitySet{}, f))
}
