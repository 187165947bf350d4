package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type document struct {
	Title   string    `json:"title" msgpack:"title"`
	Content string    `json:"content" msgpack:"content"`
	Stored  time.Time `json:"stored" msgpack:"stored"`
}

func TestCodecs_PreserveStruct(t *testing.T) {
	t.Parallel()

	in := document{Title: "Document 123", Content: "...", Stored: time.Unix(1_700_000_000, 0).UTC()}
	codecs := map[string]Codec[document]{
		"json":    JSON[document]{},
		"msgpack": Msgpack[document]{},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Marshal(in)
			require.NoError(t, err)
			require.NotEmpty(t, b)

			out, err := c.Unmarshal(b)
			require.NoError(t, err)
			require.Equal(t, in.Title, out.Title)
			require.Equal(t, in.Content, out.Content)
			require.True(t, in.Stored.Equal(out.Stored))
		})
	}
}

func TestCodecs_RejectGarbage(t *testing.T) {
	t.Parallel()

	_, err := JSON[document]{}.Unmarshal([]byte("{not json"))
	require.ErrorContains(t, err, "codec: json unmarshal")

	_, err = Msgpack[int]{}.Unmarshal([]byte{0xc1}) // 0xc1 is never used in msgpack
	require.ErrorContains(t, err, "codec: msgpack unmarshal")
}

func TestJSON_UnsupportedValue(t *testing.T) {
	t.Parallel()

	_, err := JSON[chan int]{}.Marshal(make(chan int))
	require.Error(t, err)
}
