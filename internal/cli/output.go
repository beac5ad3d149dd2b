package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает данные в stdout, а сообщения в stderr,
// так что `bomflow ... --json | jq` видит только данные.
type Output struct {
	jsonMode bool
	data     io.Writer
	msgs     io.Writer
}

// NewOutput создаёт Output поверх stdout и stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками данных и сообщений.
func NewOutputTo(jsonMode bool, data, msgs io.Writer) *Output {
	return &Output{jsonMode: jsonMode, data: data, msgs: msgs}
}

// IsJSON — включён ли режим --json.
func (o *Output) IsJSON() bool { return o.jsonMode }

// Writer — поток данных.
func (o *Output) Writer() io.Writer { return o.data }

// Print выводит rows таблицей или jsonData в режиме --json.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выравнивает колонки; пустой список печатает "(none)".
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(o.data, "(none)")
		return
	}

	tw := tabwriter.NewWriter(o.data, 0, 0, 2, ' ', 0)
	writeRow(tw, headers)
	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	writeRow(tw, rule)
	for _, row := range rows {
		writeRow(tw, row)
	}
	_ = tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	clean := make([]string, len(cells))
	for i, c := range cells {
		// табуляция и переводы строк ломают выравнивание
		clean[i] = strings.Join(strings.Fields(c), " ")
	}
	fmt.Fprintln(w, strings.Join(clean, "\t"))
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.data)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error("encode json: " + err.Error())
	}
}

// Success пишет сообщение в поток сообщений.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.msgs, msg)
}

// Error пишет сообщение об ошибке в поток сообщений.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.msgs, "Error: "+msg)
}
