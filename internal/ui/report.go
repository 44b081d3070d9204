package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/skalibog/bartrader/internal/ml"
	"github.com/skalibog/bartrader/internal/pipeline"
	"github.com/skalibog/bartrader/pkg/models"
)

// Стили отчета
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	headerCellStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	footerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// RenderDecision строит текстовый отчет об обучении и решении
func RenderDecision(symbol string, d pipeline.Decision) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("BARTRADER - %s", symbol)),
		"",
		renderSummary(d),
	}

	if len(d.Report.Classes) > 0 {
		parts = append(parts, "", sectionHeaderStyle.Render("КАЧЕСТВО НА ТЕСТОВОЙ ВЫБОРКЕ"), renderMetrics(d.Report))
	} else {
		parts = append(parts, "", footerStyle.Render("Правило без обучения, метрики не рассчитываются"))
	}

	if len(d.Importances) > 0 {
		parts = append(parts, "", sectionHeaderStyle.Render("ВАЖНОСТЬ ПРИЗНАКОВ"), renderImportances(d.Importances))
	}

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderSummary(d pipeline.Decision) string {
	lines := []string{
		fmt.Sprintf("Модель:      %s", d.Model),
		fmt.Sprintf("Бар:         %s", d.Row.Timestamp.Format(time.DateTime+" MST")),
		fmt.Sprintf("Закрытие:    %.2f", d.Row.Close),
		fmt.Sprintf("Направление: %s", formatDirection(d.Direction)),
	}
	if d.Report.TestRows > 0 {
		lines = append(lines,
			fmt.Sprintf("Accuracy:    %.4f", d.Report.Accuracy),
			fmt.Sprintf("Выборка:     %d обучение / %d тест", d.Report.TrainRows, d.Report.TestRows))
	}
	return strings.Join(lines, "\n")
}

func renderMetrics(r ml.Report) string {
	rows := make([][]string, 0, len(r.Classes)+2)
	for _, c := range r.Classes {
		rows = append(rows, metricsRow(c.Label.String(), c))
	}
	rows = append(rows,
		metricsRow("macro avg", r.MacroAvg),
		metricsRow("weighted avg", r.WeightedAvg))

	return newTable().
		Headers("класс", "precision", "recall", "f1", "support").
		Rows(rows...).
		String()
}

func metricsRow(name string, c ml.ClassMetrics) []string {
	return []string{
		name,
		fmt.Sprintf("%.2f", c.Precision),
		fmt.Sprintf("%.2f", c.Recall),
		fmt.Sprintf("%.2f", c.F1),
		fmt.Sprintf("%d", c.Support),
	}
}

func renderImportances(importances []ml.FeatureImportance) string {
	rows := make([][]string, 0, len(importances))
	for _, fi := range importances {
		rows = append(rows, []string{fi.Feature, fmt.Sprintf("%.4f", fi.Importance)})
	}

	return newTable().
		Headers("признак", "важность").
		Rows(rows...).
		String()
}

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(secondaryColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

func formatDirection(d models.Direction) string {
	var style lipgloss.Style

	switch d {
	case models.Up:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.Down:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(d.String())
}
