package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"videoconverter/models"
)

func renderJobTable(jobs []*models.ConversionJob) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "File", "Status", "Progress", "Result"})

	for _, job := range jobs {
		tw.AppendRow(table.Row{
			strconv.FormatInt(job.ID, 10),
			job.OriginalName,
			string(job.Status),
			progressCell(job),
			resultCell(job),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func progressCell(job *models.ConversionJob) string {
	switch job.Status {
	case models.StatusProcessing, models.StatusCompleted:
		return fmt.Sprintf("%d%%", job.Progress)
	default:
		return "-"
	}
}

func resultCell(job *models.ConversionJob) string {
	switch {
	case job.OutputURL != nil:
		return *job.OutputURL
	case job.Error != nil:
		return *job.Error
	default:
		return ""
	}
}

func summarizeJobs(jobs []*models.ConversionJob) string {
	counts := map[models.Status]int{}
	for _, job := range jobs {
		counts[job.Status]++
	}
	return fmt.Sprintf("%d pending, %d processing, %d completed, %d failed",
		counts[models.StatusPending],
		counts[models.StatusProcessing],
		counts[models.StatusCompleted],
		counts[models.StatusFailed],
	)
}
