package session

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		existing []string
		want     string
	}{
		{
			name: "special characters become underscores",
			raw:  "my@data!file",
			want: "_upload_my_data_file",
		},
		{
			name: "leading digit is fine behind the prefix",
			raw:  "2024-data",
			want: "_upload_2024_data",
		},
		{
			name:     "collision appends a counter",
			raw:      "data",
			existing: []string{"_upload_data"},
			want:     "_upload_data_2",
		},
		{
			name:     "counter skips taken slots",
			raw:      "data",
			existing: []string{"_upload_data", "_upload_data_2"},
			want:     "_upload_data_3",
		},
		{
			name: "runs of underscores collapse",
			raw:  "a---b___c",
			want: "_upload_a_b_c",
		},
		{
			name: "stripped-empty input gets a placeholder",
			raw:  "!!!",
			want: "_upload_unnamed",
		},
		{
			name: "empty input gets a placeholder",
			raw:  "",
			want: "_upload_unnamed",
		},
		{
			name: "clean name passes through",
			raw:  "sales_2024",
			want: "_upload_sales_2024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.raw, tt.existing)
			if got != tt.want {
				t.Fatalf("Sanitize(%q, %v) = %q, want %q", tt.raw, tt.existing, got, tt.want)
			}
		})
	}
}

func TestSanitizeIsPure(t *testing.T) {
	existing := []string{"_upload_data"}
	first := Sanitize("data", existing)
	second := Sanitize("data", existing)
	if first != second {
		t.Fatalf("Sanitize not deterministic: %q vs %q", first, second)
	}
	if len(existing) != 1 || existing[0] != "_upload_data" {
		t.Fatalf("existing mutated: %v", existing)
	}
}
