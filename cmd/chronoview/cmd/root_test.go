package cmd

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hsterling/chronoview/pkg/cq4"
	"github.com/hsterling/chronoview/pkg/decode"
	"github.com/hsterling/chronoview/pkg/schema"
	"github.com/hsterling/chronoview/pkg/wire"
)

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"config", &configError{fmt.Errorf("bad option")}, exitConfig},
		{"file not found", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, exitIO},
		{"unreadable header", fmt.Errorf("wrap: %w", cq4.ErrUnreadableHeader), exitDecode},
		{"misaligned", cq4.ErrMisalignedExcerpt, exitDecode},
		{"unknown type code", &wire.UnknownTypeCodeError{Byte: 0x8C, Pos: 3}, exitDecode},
		{"depth exceeded", wire.ErrDepthExceeded, exitDecode},
		{"unknown template", &decode.UnknownTemplateError{ID: 9}, exitDecode},
		{"duplicate class", fmt.Errorf("schema: %w", schema.ErrDuplicateClass), exitSchema},
		{"missing nested class", &decode.MissingClassError{Class: "Fill"}, exitSchema},
		{"schema parse", fmt.Errorf("schema: parse Foo.java: no class declaration found"), exitSchema},
		{"unclassified", fmt.Errorf("boom"), 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}
