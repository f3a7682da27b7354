package stan

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sbcheck/domain/model"
)

// chainOutput is one chain's parsed sampler output
type chainOutput struct {
	draws     []model.ParamVector
	divergent int
}

// parseDrawsCSV reads the engine's CSV output for one chain: comment lines
// prefixed with '#', a header row naming columns, then one row per draw.
// Only the divergence indicator and the dim coefficient columns named
// param.1 .. param.dim are read; everything else is sampler bookkeeping.
func parseDrawsCSV(r io.Reader, param string, dim int) (*chainOutput, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var header []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		header = strings.Split(line, ",")
		break
	}
	if header == nil {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("engine output has no header row")
	}

	paramCols := make([]int, dim)
	for i := range paramCols {
		paramCols[i] = -1
	}
	divergentCol := -1
	for i, name := range header {
		if name == "divergent__" {
			divergentCol = i
			continue
		}
		if rest, ok := strings.CutPrefix(name, param+"."); ok {
			idx, err := strconv.Atoi(rest)
			if err == nil && idx >= 1 && idx <= dim {
				paramCols[idx-1] = i
			}
		}
	}
	for l, col := range paramCols {
		if col == -1 {
			return nil, fmt.Errorf("engine output missing column %s.%d", param, l+1)
		}
	}

	out := &chainOutput{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("draw row has %d fields, header has %d", len(fields), len(header))
		}

		draw := make(model.ParamVector, dim)
		for l, col := range paramCols {
			v, err := strconv.ParseFloat(fields[col], 64)
			if err != nil {
				return nil, fmt.Errorf("unparseable value %q in column %s.%d: %w", fields[col], param, l+1, err)
			}
			draw[l] = v
		}
		out.draws = append(out.draws, draw)

		if divergentCol >= 0 && strings.TrimSpace(fields[divergentCol]) == "1" {
			out.divergent++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
