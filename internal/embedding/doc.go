// Package embedding builds the per-run embedding table.
//
// The Pipeline fans out over all input identifiers. For each one it asks the
// Decoder for a tensor, waits for one of Config.InferenceSlots inference
// slots, runs the Inferencer, normalizes the output and inserts it into a
// Table. Slots are a weighted semaphore shared by every task, because the
// model runtime is only safe up to that many simultaneous invocations.
//
// Failures are per identifier. A DecodeError, InferenceError or malformed
// output drops that identifier from the table and produces a Failure notice;
// the rest of the batch is unaffected.
//
// Basic usage:
//
//	p, err := embedding.NewPipeline(decoder, inferencer, embedding.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	res, err := p.Run(ctx, ids)
//	for _, f := range res.Failures {
//	    fmt.Fprintf(os.Stderr, "skipped %s (%s): %v\n", f.ID, f.Stage, f.Err)
//	}
package embedding
