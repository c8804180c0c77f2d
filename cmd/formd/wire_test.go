package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Comcast/formflow/persist"
	"github.com/Comcast/formflow/service"
	"github.com/Comcast/formflow/storage"
	"github.com/Comcast/formflow/storage/bolt"
	"github.com/Comcast/formflow/upload"

	"github.com/stretchr/testify/require"
)

var tiny = `
id: tiny
questions:
  - id: name
    type: short_text
`

func TestBuildDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.yaml"), []byte(tiny), 0644))

	c := service.DefaultConfig()
	c.FormsDir = dir
	c.Uploads.Dir = t.TempDir()

	ctx := context.Background()
	a, err := Build(ctx, c)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.Equal(t, []string{"tiny"}, a.Service.Forms.Ids())
	require.IsType(t, &storage.Memory{}, a.Service.Store)
	require.IsType(t, &persist.Noop{}, a.Scheduler.Sink)
	require.IsType(t, &upload.Dir{}, a.Service.Uploader)
	require.Equal(t, a.Scheduler, a.Service.Dispatcher)
	require.NotNil(t, a.Sweeper)
	require.Equal(t, 8, a.Scheduler.Shards)
}

func TestBuildBolt(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "formflow.db")

	c := service.DefaultConfig()
	c.FormsDir = ""
	c.Storage = service.StorageConfig{Kind: "bolt", File: filename}
	c.Sinks = []*service.SinkConfig{{Kind: "bolt"}, {Kind: "log"}}
	c.Sweep.Schedule = ""

	ctx := context.Background()
	a, err := Build(ctx, c)
	require.NoError(t, err)

	db, is := a.Service.Store.(*bolt.Storage)
	require.True(t, is)

	sinks, is := a.Scheduler.Sink.(persist.Multi)
	require.True(t, is)
	require.Len(t, sinks, 2)
	require.Same(t, db, sinks[0])
	require.Nil(t, a.Sweeper)

	require.NoError(t, a.Close(ctx))
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	c := service.DefaultConfig()
	c.Storage.Kind = "floppy"
	_, err := Build(ctx, c)
	require.Error(t, err)

	c = service.DefaultConfig()
	c.Interpreter = "cobol"
	a, err := Build(ctx, c)
	require.Error(t, err)
	require.NoError(t, a.Close(ctx))

	c = service.DefaultConfig()
	c.Sweep.Schedule = "whenever"
	a, err = Build(ctx, c)
	require.Error(t, err)
	require.NoError(t, a.Close(ctx))
}
