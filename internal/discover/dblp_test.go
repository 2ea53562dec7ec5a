// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheng/paperboy/pkg/types"
)

const dblpFixture = `{
  "result": {
    "hits": {
      "hit": [
        {"info": {
          "title": "Scaling Laws Revisited.",
          "type": "Conference and Workshop Papers",
          "ee": "https://openreview.net/forum?id=abc123"
        }},
        {"info": {
          "title": "A Journal Article.",
          "type": "Journal Articles",
          "ee": "https://openreview.net/forum?id=journal1"
        }},
        {"info": {
          "title": "Hosted Elsewhere.",
          "type": "Conference and Workshop Papers",
          "ee": "https://doi.org/10.5555/12345"
        }},
        {"info": {
          "title": "No Electronic Edition.",
          "type": "Conference and Workshop Papers",
          "ee": ""
        }}
      ]
    }
  }
}`

func TestDBLPPage_FiltersAndRewrites(t *testing.T) {
	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"q": r.URL.Query().Get("q"),
			"h": r.URL.Query().Get("h"),
			"f": r.URL.Query().Get("f"),
		}
		fmt.Fprint(w, dblpFixture)
	}))
	defer ts.Close()

	old := dblpAPIBase
	dblpAPIBase = ts.URL
	defer func() { dblpAPIBase = old }()

	p := &DBLPProvider{Client: ts.Client(), Query: "ICLR 2024", PageSize: 50}
	entries, more, err := p.Page(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "ICLR 2024", gotQuery["q"])
	assert.Equal(t, "50", gotQuery["h"])
	assert.Equal(t, "100", gotQuery["f"])

	// Only the openreview conference paper survives the filter.
	require.Len(t, entries, 1)
	assert.Equal(t, "abc123", entries[0].ID)
	assert.Equal(t, "Scaling Laws Revisited.", entries[0].Title)
	assert.Equal(t, "https://openreview.net/pdf?id=abc123", entries[0].PDFURL)

	// Four hits against a page size of 50: listing is exhausted.
	assert.False(t, more)
}

func TestDBLPPage_FullPageSignalsMore(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"hits":{"hit":[
			{"info":{"title":"One.","type":"Conference and Workshop Papers","ee":"https://openreview.net/forum?id=one"}},
			{"info":{"title":"Two.","type":"Conference and Workshop Papers","ee":"https://openreview.net/forum?id=two"}}
		]}}}`)
	}))
	defer ts.Close()

	old := dblpAPIBase
	dblpAPIBase = ts.URL
	defer func() { dblpAPIBase = old }()

	p := &DBLPProvider{Client: ts.Client(), Query: "x", PageSize: 2}
	entries, more, err := p.Page(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, more)
}

func TestDBLPDiscover_FullyFilteredPageDoesNotEndWalk(t *testing.T) {
	// The first page is full but every hit is filtered out; the openreview
	// conference paper sits on the second, short page.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") == "0" {
			fmt.Fprint(w, `{"result":{"hits":{"hit":[
				{"info":{"title":"J1.","type":"Journal Articles","ee":"https://openreview.net/forum?id=j1"}},
				{"info":{"title":"J2.","type":"Journal Articles","ee":"https://openreview.net/forum?id=j2"}}
			]}}}`)
			return
		}
		fmt.Fprint(w, `{"result":{"hits":{"hit":[
			{"info":{"title":"Real.","type":"Conference and Workshop Papers","ee":"https://openreview.net/forum?id=real"}}
		]}}}`)
	}))
	defer ts.Close()

	old := dblpAPIBase
	dblpAPIBase = ts.URL
	defer func() { dblpAPIBase = old }()

	p := &DBLPProvider{Client: ts.Client(), Query: "x", PageSize: 2}
	var got []Entry
	err := New(p, types.DiscoveryConfig{}).Discover(context.Background(), func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "real", got[0].ID)
}

func TestDBLPPage_HTTPErrorSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := dblpAPIBase
	dblpAPIBase = ts.URL
	defer func() { dblpAPIBase = old }()

	p := &DBLPProvider{Client: ts.Client(), Query: "x"}
	_, _, err := p.Page(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
