package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1024B", 1024},
		{"64Ki", 64 * KiB},
		{"64KiB", 64 * KiB},
		{"100MiB", 100 * MiB},
		{"1Gi", GiB},
		{"1gib", GiB},
		{"1 GiB", GiB},
		{"1K", KB},
		{"100MB", 100 * MB},
		{"2GB", 2 * GB},
		{"1.5Mi", ByteSize(1.5 * float64(MiB))},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12XB", "-5"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestUnmarshalYAML(t *testing.T) {
	var cfg struct {
		Buffer ByteSize `yaml:"buffer"`
		Max    ByteSize `yaml:"max"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("buffer: 64Ki\nmax: 2GiB\n"), &cfg))
	assert.Equal(t, 64*KiB, cfg.Buffer)
	assert.Equal(t, 2*GiB, cfg.Max)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "buffer: 64 KiB")
}

func TestConversions(t *testing.T) {
	assert.Equal(t, "64 KiB", (64 * KiB).String())
	assert.Equal(t, int64(1024), KiB.Int64())
	assert.Equal(t, 1024, KiB.Int())
	assert.Equal(t, int64(1<<63-1), ByteSize(1<<64-1).Int64())
}
