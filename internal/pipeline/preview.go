package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/backmassage/patchshard/internal/catalog"
	"github.com/backmassage/patchshard/internal/config"
	"github.com/backmassage/patchshard/internal/logging"
	"github.com/backmassage/patchshard/internal/partition"
	"github.com/backmassage/patchshard/internal/shard"
	"github.com/backmassage/patchshard/internal/term"
)

// planRow is one shard of the dry-run table.
type planRow struct {
	Name   string
	Worker int
	Start  int
	End    int
	Labels []int // files per label index
}

// Preview catalogs every split and prints the shard plan to w without
// reading image contents or writing anything.
func Preview(ctx context.Context, cfg *config.Config, log *logging.Logger, w io.Writer) error {
	for _, ds := range cfg.Datasets() {
		if err := partition.Validate(ds.Shards, ds.Workers); err != nil {
			return fmt.Errorf("%s split: %w", ds.Name, err)
		}
	}
	for _, ds := range cfg.Datasets() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := discover(cfg, ds, log)
		if err != nil {
			return err
		}
		plan, err := partition.Plan(len(entries), ds.Shards, ds.Workers)
		if err != nil {
			return fmt.Errorf("%s split: %w", ds.Name, err)
		}

		rows := planRows(ds, plan, entries, cfg.LabelOffset(), len(cfg.Labels))
		fmt.Fprintln(w)
		printPlanTable(w, cfg.Labels, rows)
		printPlanSummary(log, ds, rows)
	}
	return nil
}

func planRows(ds config.Dataset, plan [][]partition.Assignment, entries []catalog.Entry, offset, numLabels int) []planRow {
	var rows []planRow
	for worker, assignments := range plan {
		for _, a := range assignments {
			row := planRow{
				Name:   shard.Name(ds.Name, a.Shard, ds.Shards),
				Worker: worker,
				Start:  a.Start,
				End:    a.End,
				Labels: make([]int, numLabels),
			}
			for _, e := range entries[a.Start:a.End] {
				if i := e.Label - offset; i >= 0 && i < numLabels {
					row.Labels[i]++
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func printPlanTable(w io.Writer, labels []string, rows []planRow) {
	nameW := len("Shard")
	rangeW := len("Range")
	for _, r := range rows {
		if len(r.Name) > nameW {
			nameW = len(r.Name)
		}
		if n := len(rangeLabel(r)); n > rangeW {
			rangeW = n
		}
	}
	labelW := make([]int, len(labels))
	for i, l := range labels {
		labelW[i] = len(l)
		for _, r := range rows {
			if n := len(strconv.Itoa(r.Labels[i])); n > labelW[i] {
				labelW[i] = n
			}
		}
	}

	header := fmt.Sprintf("  %-*s  %-6s  %-*s", nameW, "Shard", "Worker", rangeW, "Range")
	for i, l := range labels {
		header += fmt.Sprintf("  %*s", labelW[i], l)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		line := fmt.Sprintf("  %-*s  %-6d  %-*s", nameW, r.Name, r.Worker, rangeW, rangeLabel(r))
		for i := range labels {
			line += fmt.Sprintf("  %*d", labelW[i], r.Labels[i])
		}
		if r.End == r.Start {
			line += "  " + term.Orange + "[empty]" + term.NC
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func rangeLabel(r planRow) string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

func printPlanSummary(log *logging.Logger, ds config.Dataset, rows []planRow) {
	minN, maxN, empty := -1, 0, 0
	for _, r := range rows {
		n := r.End - r.Start
		if minN < 0 || n < minN {
			minN = n
		}
		if n > maxN {
			maxN = n
		}
		if n == 0 {
			empty++
		}
	}
	log.Info("[%s] %d shards over %d workers, %d-%d files per shard", ds.Name, len(rows), ds.Workers, minN, maxN)
	if empty > 0 {
		log.Warn("[%s] %d shards would be empty", ds.Name, empty)
	}
}
