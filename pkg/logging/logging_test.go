package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", in: "debug", want: slog.LevelDebug},
		{name: "upper", in: "WARN", want: slog.LevelWarn},
		{name: "padded", in: " error ", want: slog.LevelError},
		{name: "invalid", in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCommonLogger(t *testing.T) {
	l, err := CommonLogger(NewConfig(`tests`))
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = CommonLogger(nil)
	require.Error(t, err)

	_, err = CommonLogger(&Config{})
	require.Error(t, err)
}
