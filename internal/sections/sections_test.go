package sections

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Section
	}{
		{
			name: "empty document",
			in:   "",
			want: nil,
		},
		{
			name: "whitespace only",
			in:   "  \n\n  ",
			want: nil,
		},
		{
			name: "no headings",
			in:   "just a paragraph\nwith two lines",
			want: []Section{
				{Heading: UntitledHeading, Level: 0, Content: "just a paragraph\nwith two lines"},
			},
		},
		{
			name: "single heading with content",
			in:   "# Title\n\nbody text",
			want: []Section{
				{Heading: "Title", Level: 1, Content: "body text"},
			},
		},
		{
			name: "content before first heading",
			in:   "preamble\n\n# Title\n\nbody",
			want: []Section{
				{Heading: UntitledHeading, Level: 0, Content: "preamble"},
				{Heading: "Title", Level: 1, Content: "body"},
			},
		},
		{
			name: "nested levels",
			in:   "# One\n\nalpha\n\n## Two\n\nbeta\n\n###### Six\n\nzeta",
			want: []Section{
				{Heading: "One", Level: 1, Content: "alpha"},
				{Heading: "Two", Level: 2, Content: "beta"},
				{Heading: "Six", Level: 6, Content: "zeta"},
			},
		},
		{
			name: "heading with no content",
			in:   "# Empty\n\n# Next\n\ntext",
			want: []Section{
				{Heading: "Empty", Level: 1, Content: ""},
				{Heading: "Next", Level: 1, Content: "text"},
			},
		},
		{
			name: "setext underline is not a heading",
			in:   "Not A Heading\n---\n\nbody",
			want: []Section{
				{Heading: UntitledHeading, Level: 0, Content: "Not A Heading\n---\n\nbody"},
			},
		},
		{
			name: "table pipes survive in content",
			in:   "# Data\n\n| a | b |\n| --- | --- |\n| 1 | 2 |",
			want: []Section{
				{Heading: "Data", Level: 1, Content: "| a | b |\n| --- | --- |\n| 1 | 2 |"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
