package busyness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantLive    *int
		wantTypical *int
	}{
		{name: "live with typical", text: "Currently 12% busy, usually 18% busy.", wantLive: intp(12), wantTypical: intp(18)},
		{name: "hourly", text: "41% busy at 9 PM.", wantTypical: intp(41)},
		{name: "nothing", text: "no information here"},
		{name: "lowercase no comma", text: "currently 5% busy usually 10% busy", wantLive: intp(5), wantTypical: intp(10)},
		{name: "upper case", text: "CURRENTLY 70% BUSY, USUALLY 40% BUSY", wantLive: intp(70), wantTypical: intp(40)},
		{name: "live wins over hourly", text: "90% busy at 8 PM. Currently 3% busy, usually 7% busy.", wantLive: intp(3), wantTypical: intp(7)},
		{name: "busy without at", text: "19% busy"},
		{name: "empty", text: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live, typical := Parse(tt.text)
			assert.Equal(t, tt.wantLive, live)
			assert.Equal(t, tt.wantTypical, typical)
		})
	}
}

func intp(v int) *int {
	return &v
}
