package export

// Dataset defines tabular export content shared by all renderers.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}
