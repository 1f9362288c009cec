package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MathisTLD/multiparse/pkg/api"
	"github.com/MathisTLD/multiparse/pkg/config"
	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		lines = append(lines, m)
	}
	return lines
}

func TestInitCommand(t *testing.T) {
	env := newTestEnv(t)

	t.Run("creates config", func(t *testing.T) {
		out, err := env.run(t, nil, "init")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration created at "+env.configPath)

		cfg, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)
		assert.Equal(t, env.dataDir, cfg.Storage.DataDir)
		assert.Len(t, cfg.Server.APIKey, 64)
		assert.Contains(t, out, cfg.Server.APIKey)
	})

	t.Run("keeps existing config", func(t *testing.T) {
		before, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)

		out, err := env.run(t, nil, "init")
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		after, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)
		assert.Equal(t, before.Server.APIKey, after.Server.APIKey)
	})

	t.Run("force overwrites", func(t *testing.T) {
		before, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)

		_, err = env.run(t, nil, "init", "--force")
		require.NoError(t, err)

		after, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)
		assert.NotEqual(t, before.Server.APIKey, after.Server.APIKey)
	})
}

func TestDecodeCommand(t *testing.T) {
	env := newTestEnv(t)

	stream := buildStream(t, "frame",
		jsonFrame(`{"a":1,"b":2}`),
		multipart.Part{Headers: map[string]string{"Content-Type": "application/xml"}, Body: []byte("<a/>")},
		multipart.Part{Headers: map[string]string{"Content-Type": "image/jpeg"}, Body: []byte{0xff, 0xd8, 0xff, 0xd9}},
	)

	t.Run("stdin", func(t *testing.T) {
		out, err := env.run(t, bytes.NewReader(stream), "decode", "--boundary", "frame")
		require.NoError(t, err)

		lines := decodeLines(t, out)
		require.Len(t, lines, 3)
		assert.Equal(t, "json", lines[0]["kind"])
		assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(2)}, lines[0]["body"])
		assert.Equal(t, "text", lines[1]["kind"])
		assert.Equal(t, "<a/>", lines[1]["body"])
		assert.Equal(t, "binary", lines[2]["kind"])
		assert.Equal(t, "/9j/2Q==", lines[2]["body"])
		assert.Equal(t, float64(2), lines[2]["index"])
	})

	t.Run("file argument", func(t *testing.T) {
		path := filepath.Join(env.dir, "stream.bin")
		require.NoError(t, os.WriteFile(path, stream, 0600))

		out, err := env.run(t, nil, "decode", "-b", "frame", path)
		require.NoError(t, err)
		assert.Len(t, decodeLines(t, out), 3)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := env.run(t, nil, "decode", "-b", "frame", filepath.Join(env.dir, "nope.bin"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open input")
	})

	t.Run("boundary required", func(t *testing.T) {
		_, err := env.run(t, bytes.NewReader(stream), "decode")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a boundary is required")
	})

	t.Run("invalid truncated policy", func(t *testing.T) {
		_, err := env.run(t, bytes.NewReader(stream), "decode", "-b", "frame", "--truncated", "keep")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown truncated frame policy")
	})

	t.Run("negative max part size", func(t *testing.T) {
		_, err := env.run(t, bytes.NewReader(stream), "decode", "-b", "frame", "--max-part-size", "-1")
		assert.Error(t, err)
	})
}

func TestDecodeCommand_Policies(t *testing.T) {
	env := newTestEnv(t)

	truncated := "--frame\r\nContent-Type: application/json\r\nContent-Length: 7\r\n\r\n{\"n\":1}\r\n" +
		"--frame\r\nContent-Type: application/json\r\nContent-Length: 7\r\n\r\n{\"n\""

	t.Run("truncated frame dropped by default", func(t *testing.T) {
		out, err := env.run(t, strings.NewReader(truncated), "decode", "-b", "frame")
		require.NoError(t, err)
		assert.Len(t, decodeLines(t, out), 1)
	})

	t.Run("truncated frame as error", func(t *testing.T) {
		out, err := env.run(t, strings.NewReader(truncated), "decode", "-b", "frame", "--truncated", "error")
		require.Error(t, err)
		assert.ErrorIs(t, err, multipart.ErrTruncatedFrame)
		assert.Contains(t, err.Error(), "decode failed after 1 parts")
		assert.Len(t, decodeLines(t, out), 1)
	})

	noisy := "garbage\r\n--frame\r\nContent-Type: application/json\r\nContent-Length: 2\r\n\r\n{}\r\n--frame--\r\n"

	t.Run("noise skipped", func(t *testing.T) {
		out, err := env.run(t, strings.NewReader(noisy), "decode", "-b", "frame")
		require.NoError(t, err)
		assert.Len(t, decodeLines(t, out), 1)
	})

	t.Run("strict boundary", func(t *testing.T) {
		_, err := env.run(t, strings.NewReader(noisy), "decode", "-b", "frame", "--strict")
		require.Error(t, err)
		assert.ErrorIs(t, err, multipart.ErrUnexpectedLine)
	})

	t.Run("max part size", func(t *testing.T) {
		_, err := env.run(t, strings.NewReader(noisy), "decode", "-b", "frame", "--max-part-size", "1")
		require.Error(t, err)
		assert.ErrorIs(t, err, multipart.ErrPartTooLarge)
	})

	t.Run("max line size", func(t *testing.T) {
		unterminated := "--frame\r\nContent-Type: application/json\r\nX-Long: " + strings.Repeat("v", 64)
		_, err := env.run(t, strings.NewReader(unterminated), "decode", "-b", "frame", "--max-line-size", "32")
		require.Error(t, err)
		assert.ErrorIs(t, err, multipart.ErrLineTooLong)
	})

	t.Run("negative max line size", func(t *testing.T) {
		_, err := env.run(t, strings.NewReader(noisy), "decode", "-b", "frame", "--max-line-size", "-1")
		assert.Error(t, err)
	})
}

func TestEncodeCommand(t *testing.T) {
	env := newTestEnv(t)

	jsonPath := filepath.Join(env.dir, "a.json")
	binPath := filepath.Join(env.dir, "b.bin")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"a":1}`), 0600))
	require.NoError(t, os.WriteFile(binPath, []byte{0x00, 0x01, 0x02}, 0600))

	t.Run("round trip", func(t *testing.T) {
		stream, err := env.run(t, nil, "encode", "--boundary", "frame", jsonPath, binPath)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stream, "--frame\r\nContent-Type: application/json\r\n"))
		assert.True(t, strings.HasSuffix(stream, "--frame--\r\n"))

		parts, err := multipart.ReadAll(context.Background(), strings.NewReader(stream),
			multipart.DecoderConfig{Boundary: "frame"})
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, "application/json", parts[0].ContentType)
		assert.Equal(t, `{"a":1}`, string(parts[0].Body))
		assert.Equal(t, "application/octet-stream", parts[1].ContentType)
		assert.Equal(t, []byte{0x00, 0x01, 0x02}, parts[1].Body)
	})

	t.Run("type override and default boundary", func(t *testing.T) {
		stream, err := env.run(t, nil, "encode", "--type", "text/plain", jsonPath)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stream, "--"+defaultEncodeBoundary+"\r\nContent-Type: text/plain\r\n"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := env.run(t, nil, "encode", filepath.Join(env.dir, "nope"))
		assert.Error(t, err)
	})

	t.Run("requires files", func(t *testing.T) {
		_, err := env.run(t, nil, "encode")
		assert.Error(t, err)
	})
}

func TestCaptureWorkflow(t *testing.T) {
	env := newTestEnv(t)

	stream := buildStream(t, "frame", jsonFrame(`{"n":1}`), jsonFrame(`{"n":2}`))

	out, err := env.run(t, bytes.NewReader(stream), "capture", "-b", "frame")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 2)

	t.Run("list", func(t *testing.T) {
		out, err := env.run(t, nil, "list")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "ID"))
		for _, id := range ids {
			assert.Contains(t, out, id)
		}
		assert.Contains(t, out, "application/json")

		limited, err := env.run(t, nil, "list", "--limit", "1")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(limited), "\n"), 2)
	})

	t.Run("get json", func(t *testing.T) {
		out, err := env.run(t, nil, "get", ids[0])
		require.NoError(t, err)

		var resp api.PartResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, ids[0], resp.ID)
		assert.Equal(t, "json", resp.Kind)
		assert.NotNil(t, resp.CapturedAt)
	})

	t.Run("get raw", func(t *testing.T) {
		out, err := env.run(t, nil, "get", ids[1], "--raw")
		require.NoError(t, err)
		assert.Equal(t, `{"n":2}`, out)
	})

	t.Run("get invalid id", func(t *testing.T) {
		_, err := env.run(t, nil, "get", "not-an-id")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		out, err := env.run(t, nil, "delete", ids[0])
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted "+ids[0])

		_, err = env.run(t, nil, "get", ids[0])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "part not found")

		_, err = env.run(t, nil, "delete", ids[0])
		assert.Error(t, err)
	})
}

func TestCaptureCommand_KeepsPartsBeforeError(t *testing.T) {
	env := newTestEnv(t)

	stream := "--frame\r\nContent-Type: application/json\r\nContent-Length: 2\r\n\r\n{}\r\n" +
		"--frame\r\nContent-Length: nope\r\n\r\n"

	out, err := env.run(t, strings.NewReader(stream), "capture", "-b", "frame")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed after 1 stored parts")
	assert.Len(t, strings.Fields(out), 1)

	listed, err := env.run(t, nil, "list")
	require.NoError(t, err)
	assert.Contains(t, listed, strings.Fields(out)[0])
}

type fakeServerFactory struct {
	starter *fakeServerStarter
}

func (f *fakeServerFactory) CreateServerStarter() api.ServerStarter {
	return f.starter
}

type fakeServerStarter struct {
	called bool
	config api.ServerConfig
	count  int
}

func (s *fakeServerStarter) StartServer(ctx context.Context, store api.IPartStore, config api.ServerConfig) error {
	s.called = true
	s.config = config
	n, err := store.Count()
	s.count = n
	return err
}

func TestServeCommand(t *testing.T) {
	env := newTestEnv(t)

	serve := func(t *testing.T, args ...string) (*fakeServerStarter, string, error) {
		starter := &fakeServerStarter{}
		container.SetServerFactory(&fakeServerFactory{starter: starter})
		out, err := env.run(t, nil, append([]string{"serve"}, args...)...)
		return starter, out, err
	}

	t.Run("defaults generate a key", func(t *testing.T) {
		starter, out, err := serve(t)
		require.NoError(t, err)
		require.True(t, starter.called)
		assert.Equal(t, "127.0.0.1", starter.config.Bind)
		assert.Equal(t, 9300, starter.config.Port)
		assert.Len(t, starter.config.APIKey, 64)
		assert.Contains(t, out, starter.config.APIKey)
		assert.Equal(t, multipart.TruncatedDrop, starter.config.Decoder.TruncatedFrame)
		assert.NotNil(t, starter.config.Logger)
	})

	t.Run("flags override", func(t *testing.T) {
		starter, _, err := serve(t, "--bind", "0.0.0.0", "--port", "9400", "--api-key", "secret")
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", starter.config.Bind)
		assert.Equal(t, 9400, starter.config.Port)
		assert.Equal(t, "secret", starter.config.APIKey)
	})

	t.Run("config key", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Server.APIKey = "from-config"
		cfg.Decoder.MaxPartSize = 1024
		require.NoError(t, config.SaveConfig(cfg, env.configPath))
		defer os.Remove(env.configPath)

		starter, _, err := serve(t)
		require.NoError(t, err)
		assert.Equal(t, "from-config", starter.config.APIKey)
		assert.Equal(t, 1024, starter.config.Decoder.MaxPartSize)
	})

	t.Run("no auth", func(t *testing.T) {
		starter, _, err := serve(t, "--no-auth")
		require.NoError(t, err)
		assert.Empty(t, starter.config.APIKey)
	})

	t.Run("store is open", func(t *testing.T) {
		stream := buildStream(t, "frame", jsonFrame(`{}`))
		_, err := env.run(t, bytes.NewReader(stream), "capture", "-b", "frame")
		require.NoError(t, err)

		starter, _, err := serve(t, "--no-auth")
		require.NoError(t, err)
		assert.Equal(t, 1, starter.count)
	})
}
