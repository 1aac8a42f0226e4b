package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecognizeReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Exit 12 Main St"}}]}`))
	}))
	defer srv.Close()

	rec := NewRecognizer("key").WithEndpoint(srv.URL)
	text, err := rec.Recognize(context.Background(), "https://host/sign.jpg")
	require.NoError(t, err)
	require.Equal(t, "Exit 12 Main St", text)
}

func TestRecognizeNoTextTokenUsesPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"[NO_TEXT_DETECTED]"}}]}`))
	}))
	defer srv.Close()

	rec := NewRecognizer("key").WithEndpoint(srv.URL)
	text, err := rec.Recognize(context.Background(), "https://host/blank.jpg")
	require.NoError(t, err)
	require.Equal(t, NoTextPlaceholder, text)
}

func TestRecognizeEmptyReplyUsesPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	rec := NewRecognizer("key").WithEndpoint(srv.URL)
	text, err := rec.Recognize(context.Background(), "https://host/blank.jpg")
	require.NoError(t, err)
	require.Equal(t, NoTextPlaceholder, text)
}
