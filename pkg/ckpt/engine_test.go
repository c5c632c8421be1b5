// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns each chunk over one or more Read calls, never mixing
// bytes of two chunks in a single call.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

type failingReader struct {
	after int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := len(p)
	if n > r.after {
		n = r.after
	}
	r.after -= n
	return n, nil
}

func TestStream_ArbitraryChunkSizes(t *testing.T) {
	chunks := [][]byte{
		[]byte("a"),
		bytes.Repeat([]byte("b"), 17),
		{},
		bytes.Repeat([]byte("c"), 3),
		bytes.Repeat([]byte("d"), 40),
	}
	var want []byte
	for _, c := range chunks {
		want = append(want, c...)
	}

	for _, bufSize := range []int{1, 7, 16, 64, DefaultBufferSize} {
		t.Run(strconv.Itoa(bufSize), func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			e := &Engine{Fs: fsys, BufferSize: bufSize, Logger: discardLogger()}

			in := make([][]byte, len(chunks))
			for i, c := range chunks {
				in[i] = append([]byte(nil), c...)
			}

			var events []ProgressEvent
			n, err := e.Stream(&chunkReader{chunks: in}, "/out.bin", int64(len(want)), func(ev ProgressEvent) {
				events = append(events, ev)
			})
			require.NoError(t, err)
			assert.Equal(t, int64(len(want)), n)

			got, err := afero.ReadFile(fsys, "/out.bin")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			require.GreaterOrEqual(t, len(events), 3)
			assert.Equal(t, EventFileStart, events[0].Event)
			assert.Equal(t, EventDone, events[len(events)-1].Event)

			last := -1.0
			for _, ev := range events[1 : len(events)-1] {
				require.Equal(t, EventProgress, ev.Event)
				pct := ev.Progress().Percent()
				assert.GreaterOrEqual(t, pct, last)
				last = pct
			}
			assert.Equal(t, "100.00", strconv.FormatFloat(last, 'f', 2, 64))
		})
	}
}

func TestStream_TruncatesExistingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/out.bin", bytes.Repeat([]byte("z"), 100), 0o644))

	e := &Engine{Fs: fsys, Logger: discardLogger()}
	_, err := e.Stream(bytes.NewReader([]byte("new")), "/out.bin", 3, nil)
	require.NoError(t, err)

	got, _ := afero.ReadFile(fsys, "/out.bin")
	assert.Equal(t, []byte("new"), got)
}

func TestStream_ReadErrorLeavesPartialFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := &Engine{Fs: fsys, BufferSize: 4, Logger: discardLogger()}

	n, err := e.Stream(&failingReader{after: 10}, "/out.bin", 100, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int64(10), n)

	got, _ := afero.ReadFile(fsys, "/out.bin")
	assert.Len(t, got, 10)
}

func TestProgressString(t *testing.T) {
	const gb = 1024 * 1024 * 1024
	assert.Equal(t, "50.00% (1.00/2.00 Gb)", Progress{Transferred: gb, Total: 2 * gb}.String())
	assert.Equal(t, "100.00% (2.00/2.00 Gb)", Progress{Transferred: 2 * gb, Total: 2 * gb}.String())
	assert.Equal(t, "33.33% (0.00/0.00 Gb)", Progress{Transferred: 1, Total: 3}.String())
	assert.Equal(t, 0.0, Progress{Transferred: 5}.Percent())
	assert.Equal(t, 0.0, Progress{Transferred: 0, Total: -1}.Percent())
	assert.Equal(t, "100.00% (0.00/0.00 Gb)", Progress{}.String())
}

func newTLSEngine(srv *httptest.Server, fsys afero.Fs) *Engine {
	return NewEngine(Settings{HTTPClient: srv.Client(), Fs: fsys})
}

func TestTransfer_Success(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 20000)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("token"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	n, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL+"/ckpt?token=abc", "/ckpt.safetensors", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)

	got, err := afero.ReadFile(fsys, "/ckpt.safetensors")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestTransfer_MissingContentLength(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("streamed without a length"))
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	var events int
	_, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL, "/ckpt.safetensors", func(ProgressEvent) { events++ })
	require.ErrorIs(t, err, ErrContentLength)
	assert.Equal(t, "Zero size file.", err.Error())
	assert.Zero(t, events)

	exists, _ := afero.Exists(fsys, "/ckpt.safetensors")
	assert.False(t, exists, "destination must not be opened")
}

func TestTransfer_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	_, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL+"?token=secret", "/ckpt.safetensors", nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.False(t, se.IsRetryable())

	exists, _ := afero.Exists(fsys, "/ckpt.safetensors")
	assert.False(t, exists)
}

func TestTransfer_ConnectionErrorIsRedacted(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	client := srv.Client()
	srv.Close()

	e := NewEngine(Settings{HTTPClient: client, Fs: afero.NewMemMapFs()})
	_, err := e.Transfer(context.Background(), url+"/ckpt?token=secret", "/ckpt.safetensors", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestTransfer_EmptyArtifact(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	var last ProgressEvent
	n, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL, "/ckpt.safetensors", func(ev ProgressEvent) { last = ev })
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, EventDone, last.Event)
	assert.Equal(t, "100.00% (0.00/0.00 Gb)", last.Progress().String())

	got, err := afero.ReadFile(fsys, "/ckpt.safetensors")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransfer_ShortBodyLeavesPartialFile(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	var done bool
	n, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL+"?token=secret", "/ckpt.safetensors", func(ev ProgressEvent) {
		done = done || ev.Event == EventDone
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "read response body")
	assert.NotContains(t, err.Error(), "secret")
	assert.False(t, done)

	got, err := afero.ReadFile(fsys, "/ckpt.safetensors")
	require.NoError(t, err)
	assert.Equal(t, int64(len(got)), n)
	assert.Equal(t, "0123456789", string(got))
}

func TestTransfer_RefusesRedirectToPlainHTTP(t *testing.T) {
	var plainHits int32
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&plainHits, 1)
		_, _ = w.Write([]byte("plain"))
	}))
	defer plain.Close()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, plain.URL+"/ckpt?"+r.URL.RawQuery, http.StatusFound)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	_, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL+"/ckpt?token=secret", "/ckpt.safetensors", nil)
	require.ErrorIs(t, err, ErrInsecureRedirect)
	assert.NotContains(t, err.Error(), "secret")
	assert.Zero(t, atomic.LoadInt32(&plainHits))

	exists, _ := afero.Exists(fsys, "/ckpt.safetensors")
	assert.False(t, exists)
}

func TestTransfer_FollowsHTTPSRedirect(t *testing.T) {
	body := []byte("moved weights")
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ckpt" {
			http.Redirect(w, r, "/blob?"+r.URL.RawQuery, http.StatusFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	_, err := newTLSEngine(srv, fsys).Transfer(context.Background(), srv.URL+"/ckpt?token=abc", "/ckpt.safetensors", nil)
	require.NoError(t, err)

	got, err := afero.ReadFile(fsys, "/ckpt.safetensors")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestNewEngine_DoesNotModifyCallerClient(t *testing.T) {
	c := &http.Client{}
	e := NewEngine(Settings{HTTPClient: c})
	assert.Nil(t, c.CheckRedirect)
	assert.NotNil(t, e.Client.CheckRedirect)
}
