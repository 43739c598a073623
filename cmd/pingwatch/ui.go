package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pingpath/pingpath/monitor"
)

type userInterface struct {
	app   *tview.Application
	table *tview.Table
	units []*unit
	mon   *monitor.Monitor
}

func buildTUI(units []*unit, mon *monitor.Monitor) *userInterface {
	ui := &userInterface{
		app:   tview.NewApplication(),
		table: tview.NewTable().SetBorders(false).SetFixed(2, 0),
		units: units,
		mon:   mon,
	}

	ui.table.SetTitle(" pingwatch (press [q] to exit) ")

	ui.table.SetCell(0, 0, tview.NewTableCell("host").SetAlign(tview.AlignLeft))
	ui.table.SetCell(0, 1, tview.NewTableCell("sent").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 2, tview.NewTableCell("loss").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 3, tview.NewTableCell("best").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 4, tview.NewTableCell("worst").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 5, tview.NewTableCell("median").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 6, tview.NewTableCell("mean").SetAlign(tview.AlignRight))
	ui.table.SetCell(0, 7, tview.NewTableCell("stddev").SetAlign(tview.AlignRight))

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			ui.app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				ui.app.Stop()
				return nil
			}
		}
		return event
	})

	cols := 8
	for r, u := range units {
		for c := 0; c < cols; c++ {
			var cell *tview.TableCell
			switch c {
			case 0:
				cell = tview.NewTableCell(u.display).SetAlign(tview.AlignLeft)
			default:
				cell = tview.NewTableCell("n/a").SetAlign(tview.AlignRight)
			}
			ui.table.SetCell(r+2, c, cell)
		}
	}

	return ui
}

func (ui *userInterface) Run() error {
	ui.app.SetRoot(ui.table, true).SetFocus(ui.table)
	return ui.app.Run()
}

func (ui *userInterface) update(interval time.Duration) {
	time.Sleep(interval)
	for {
		metrics := ui.mon.Export()

		for i, u := range ui.units {
			m := metrics[u.remote.String()]
			if m == nil {
				continue
			}
			r := i + 2

			ui.table.GetCell(r, 1).SetText(strconv.Itoa(m.PacketsSent))
			ui.table.GetCell(r, 2).SetText(fmt.Sprintf("%0.2f%%", m.LossPercent()))
			ui.table.GetCell(r, 3).SetText(ts(m.Best))
			ui.table.GetCell(r, 4).SetText(ts(m.Worst))
			ui.table.GetCell(r, 5).SetText(ts(m.Median))
			ui.table.GetCell(r, 6).SetText(ts(m.Mean))
			ui.table.GetCell(r, 7).SetText(m.StdDev.String())
		}

		ui.app.Draw()
		time.Sleep(interval)
	}
}

const tsDividend = float64(time.Millisecond) / float64(time.Nanosecond)

func ts(dur time.Duration) string {
	if 10*time.Microsecond < dur && dur < time.Second {
		return fmt.Sprintf("%0.2fms", float64(dur.Nanoseconds())/tsDividend)
	}
	return dur.String()
}
