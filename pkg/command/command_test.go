package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *Command
		wantErr error
	}{
		{name: "bare", body: "!ticket", want: &Command{Name: NameHelp}},
		{name: "help", body: "!ticket help", want: &Command{Name: NameHelp}},
		{name: "open numeric", body: "!ticket open 2", want: &Command{Name: NameOpen, Category: "2"}},
		{
			name: "open with subject",
			body: "!ticket open purchase  card was   charged twice ",
			want: &Command{Name: NameOpen, Category: "purchase", Subject: "card was   charged twice"},
		},
		{name: "open no category", body: "!ticket open", want: &Command{Name: NameOpen}},
		{name: "close", body: "  !ticket close", want: &Command{Name: NameClose}},
		{name: "status upper", body: "!ticket STATUS", want: &Command{Name: NameStatus}},
		{name: "delete", body: "!ticket delete", want: &Command{Name: NameDelete}},
		{name: "unknown", body: "!ticket reopen", wantErr: ErrUnknownSubcommand},
		{name: "other prefix", body: "!tickets open", wantErr: ErrNotCommand},
		{name: "plain text", body: "hello", wantErr: ErrNotCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.body)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
