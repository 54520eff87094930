package bridge

import "github.com/rowetechinc/river/internal/decoder"

// handleEnsemble publishes adcp_ens, the one-time bootstrap and the plot
// update for e, then forwards e to the sink. Frames without ensemble
// metadata only reach the sink.
func (r *reader) handleEnsemble(e decoder.Ensemble) {
	if e.HasData() {
		r.m.store.SetEnsembleNumber(e.Data.Number)
		r.publish(EventEnsemble, EnsemblePayload{Number: e.Data.Number})

		ts := e.Data.Time.Format(r.m.opts.TimestampFormat)
		if !r.bootstrapped {
			r.bootstrapped = true
			r.publish(EventBootstrap, PlotPayload{X: []string{ts}, Y: []float64{0}})
		}

		if v, ok := e.Voltage(); ok {
			r.publish(EventUpdatePlot, r.m.voltage.Append(ts, v))
		}
	}

	if r.m.sink != nil && !r.stopped() {
		r.m.sink.AddEnsemble(e)
	}
}
