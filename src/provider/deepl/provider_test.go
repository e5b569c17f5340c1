package deepl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/provider/deepl"
	"swiftlingo/src/translate"
)

func request(t *testing.T, text, source, target string) translate.Request {
	t.Helper()
	span, err := translate.NewTextSpan(text, time.Now())
	require.NoError(t, err)
	req, err := translate.NewRequest(span, source, target)
	require.NoError(t, err)
	return req
}

func TestEndpointByPlan(t *testing.T) {
	free := deepl.New(translate.ProviderConfig{ID: "d", Credential: "abc:fx"}, nil)
	pro := deepl.New(translate.ProviderConfig{ID: "d", Credential: "abc"}, nil)
	require.Equal(t, "https://api-free.deepl.com/v2/translate", free.Endpoint())
	require.Equal(t, "https://api.deepl.com/v2/translate", pro.Endpoint())
}

func TestLanguageCodes(t *testing.T) {
	require.Equal(t, "EN-US", deepl.TargetCode("en"))
	require.Equal(t, "PT-BR", deepl.TargetCode("pt"))
	require.Equal(t, "ZH", deepl.TargetCode("zh-cn"))
	require.Equal(t, "DE", deepl.TargetCode("de"))
	require.Equal(t, "EN", deepl.SourceCode("en-gb"))
}

func TestSupports(t *testing.T) {
	p := deepl.New(translate.ProviderConfig{ID: "d", Credential: "k"}, nil)
	require.True(t, p.Supports(translate.LanguagePair{Source: "auto", Target: "de"}))
	require.False(t, p.Supports(translate.LanguagePair{Source: "auto", Target: "hi"}))
	require.False(t, deepl.New(translate.ProviderConfig{ID: "d"}, nil).Supports(translate.LanguagePair{Target: "de"}))
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DeepL-Auth-Key k", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "hello", r.PostForm.Get("text"))
		require.Equal(t, "DE", r.PostForm.Get("target_lang"))
		require.Equal(t, "EN", r.PostForm.Get("source_lang"))
		_, _ = w.Write([]byte(`{"translations":[{"detected_source_language":"EN","text":"hallo"}]}`))
	}))
	defer srv.Close()

	p := deepl.New(translate.ProviderConfig{ID: "d", Endpoint: srv.URL, Credential: "k"}, srv.Client())
	res, err := p.Translate(context.Background(), request(t, "hello", "en", "de"), time.Second)
	require.NoError(t, err)
	require.Equal(t, "hallo", res.Text)
	require.Equal(t, "en", res.SourceLanguage)
}

func TestQuotaExceededIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(456)
	}))
	defer srv.Close()

	p := deepl.New(translate.ProviderConfig{ID: "d", Endpoint: srv.URL, Credential: "k"}, srv.Client())
	_, err := p.Translate(context.Background(), request(t, "hello", "", "de"), time.Second)
	require.ErrorIs(t, err, translate.ErrRateLimited)
}
