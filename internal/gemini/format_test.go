package gemini

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTurns_TextOnly(t *testing.T) {
	contents := FormatTurns([]Turn{{Role: "user", Content: "hi"}})

	require.Len(t, contents, 1)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, []Part{{Text: "hi"}}, contents[0].Parts)
}

func TestFormatTurns_ImagePrecedesText(t *testing.T) {
	contents := FormatTurns([]Turn{{
		Role:      "user",
		Content:   "hi",
		ImageData: "data:image/png;base64,QQ==",
	}})

	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 2)

	inline := contents[0].Parts[0].InlineData
	require.NotNil(t, inline)
	require.Equal(t, "image/png", inline.MimeType)
	require.Equal(t, "QQ==", inline.Data)

	require.Equal(t, Part{Text: "hi"}, contents[0].Parts[1])
}

func TestFormatTurns_RoleMapping(t *testing.T) {
	contents := FormatTurns([]Turn{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
	})

	require.Len(t, contents, 2)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, "model", contents[1].Role)
}

func TestFormatTurns_EmptyContentStillEmitsTextPart(t *testing.T) {
	contents := FormatTurns([]Turn{{Role: "assistant", Content: ""}})

	require.Len(t, contents, 1)
	require.Equal(t, []Part{{Text: ""}}, contents[0].Parts)
}
