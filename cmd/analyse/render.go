package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/unklstewy/ads-bfuel/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	totalsStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
)

// Render formats a report for the terminal.
func Render(r *pipeline.Report) string {
	var b strings.Builder

	title := r.ICAO24
	if r.Registration != "" {
		title += " (" + r.Registration + ")"
	}
	b.WriteString(titleStyle.Render(title+" "+r.TypeCode) + "\n\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", label)) + valueStyle.Render(value) + "\n")
	}
	field("Run", r.RunID)
	field("Engine", r.EngineID)
	field("Samples", fmt.Sprintf("%s of %s", humanize.Comma(int64(r.Samples)), humanize.Comma(int64(r.InputSamples))))
	field("Distance", num(r.DistanceKm)+" km")
	field("Strategy", fmt.Sprintf("%s (%d candidate legs, %d dropped)", r.Strategy, r.Segmentation.Candidates, r.Segmentation.Dropped()))
	method := r.NOxMethod
	if method == "" {
		method = "off"
	}
	field("Fuel / NOx", r.FuelMode+" / "+method)
	b.WriteString("\n")

	if len(r.Legs) == 0 {
		b.WriteString(warnStyle.Render("No legs found") + "\n")
	} else {
		b.WriteString(legTable(r) + "\n")
	}

	b.WriteString("\n" + totalsStyle.Render(fmt.Sprintf("Total: %s kg fuel, %s kg CO2, %s kg H2O, %s kg NOx",
		num(r.Totals.Fuel), num(r.Totals.CO2), num(r.Totals.H2O), num(r.Totals.NOx))) + "\n")

	if r.Skipped > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d leg(s) could not be integrated", r.Skipped)) + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString(warnStyle.Render("warning: "+w) + "\n")
	}
	if r.ArchivePath != "" {
		b.WriteString(labelStyle.Render("Archived to "+r.ArchivePath) + "\n")
	}
	return b.String()
}

func legTable(r *pipeline.Report) string {
	rows := make([][]string, 0, len(r.Legs))
	failed := make(map[int]bool)
	for i, leg := range r.Legs {
		if !leg.Integrated() {
			failed[i] = true
			rows = append(rows, []string{
				strconv.Itoa(leg.Leg),
				leg.Start.Format("Jan 02 15:04"),
				duration(leg.Duration()),
				num(leg.DistanceKm),
				"error: " + leg.Error, "", "", "",
			})
			continue
		}
		mtow := ""
		if leg.Retried {
			mtow = " *"
		}
		rows = append(rows, []string{
			strconv.Itoa(leg.Leg),
			leg.Start.Format("Jan 02 15:04"),
			duration(leg.Duration()),
			num(leg.DistanceKm),
			num(leg.Totals.Fuel) + mtow,
			num(leg.Totals.CO2),
			num(leg.Totals.NOx),
			num(leg.FinalMassKg),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Leg", "Start (UTC)", "Duration", "Dist km", "Fuel kg", "CO2 kg", "NOx kg", "Final mass").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case failed[row]:
				return errStyle
			}
			return cellStyle
		})
	return t.String()
}

// num formats a mass or distance with thousands separators.
func num(v float64) string {
	if v >= 100 {
		return humanize.FormatFloat("#,###.", v)
	}
	return humanize.FormatFloat("#,###.##", v)
}

func duration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
