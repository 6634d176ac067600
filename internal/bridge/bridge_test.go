package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func kv(k, v string) simargs.KV { return simargs.KV{Key: k, Value: simargs.ParseValue(v)} }

func TestSerialize(t *testing.T) {
	tests := []struct {
		name    string
		kwargs  []simargs.KV
		want    string
		wantErr bool
	}{
		{name: "empty", want: ""},
		{name: "ordered", kwargs: []simargs.KV{kv("config", "brent"), kv("cores", "4")}, want: "config=brent,cores=4"},
		{name: "list value", kwargs: []simargs.KV{{Key: "m", Value: simargs.NewList("a.yml", "b.yml")}}, want: "m=a.yml b.yml"},
		{name: "comma in value", kwargs: []simargs.KV{{Key: "m", Value: simargs.NewString("a,b")}}, wantErr: true},
		{name: "equals in value", kwargs: []simargs.KV{{Key: "m", Value: simargs.NewString("x=1")}}, wantErr: true},
		{name: "equals in key", kwargs: []simargs.KV{{Key: "a=b", Value: simargs.NewString("1")}}, wantErr: true},
		{name: "empty key", kwargs: []simargs.KV{{Key: "", Value: simargs.NewString("1")}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(tt.kwargs)
			if tt.wantErr {
				var invalid *apperrors.ErrInvalidArgument
				assert.True(t, errors.As(err, &invalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgs(t *testing.T) {
	args, err := Args("fetch_results", "archer2", []simargs.KV{kv("regex", "brent*")})
	require.NoError(t, err)
	assert.Equal(t, []string{"archer2", "fetch_results:regex=brent*"}, args)

	args, err = Args("stat", "archer2", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"archer2", "stat"}, args)

	_, err = Args("", "archer2", nil)
	assert.Error(t, err)
	_, err = Args("stat", " ", nil)
	assert.Error(t, err)
}

func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fabsim")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRun_StreamsOutput(t *testing.T) {
	var out bytes.Buffer
	b := New(fakeTool(t, `echo "$1|$2"`), time.Minute, WithOutput(&out, &out))

	err := b.Run(context.Background(), "ensemble", "archer2", []simargs.KV{kv("config", "brent"), kv("size", "25")})
	require.NoError(t, err)
	assert.Equal(t, "archer2|ensemble:config=brent,size=25\n", out.String())
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	b := New(fakeTool(t, "exit 2\n"), time.Minute)
	assert.NoError(t, b.Run(context.Background(), "stat", "archer2", nil))
}

func TestRun_Failures(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "missing"), time.Minute)
	assert.Error(t, b.Run(context.Background(), "stat", "archer2", nil))

	spawned := filepath.Join(t.TempDir(), "spawned")
	b = New(fakeTool(t, "touch "+spawned+"\n"), time.Minute)
	err := b.Run(context.Background(), "stat", "archer2", []simargs.KV{{Key: "m", Value: simargs.NewString("a,b")}})
	assert.Error(t, err)
	assert.NoFileExists(t, spawned, "invalid kwargs never spawn a process")

	b = New(fakeTool(t, "exec sleep 10\n"), 100*time.Millisecond)
	err = b.Run(context.Background(), "stat", "archer2", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "timed out")
}
