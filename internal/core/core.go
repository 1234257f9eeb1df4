/*
Core implements the single-threaded strategy executor.

# Module
  - dispatcher: the only consumer of the in-memory bus; updates ledgers then invokes the strategy
  - order ledger: order lifecycle, dedupe by sequence, retention eviction
  - position ledger: weighted average positions built from confirmed fills
  - market cache: last trade, last quote and bounded bar history
  - risk engine: pre-trade guards applied before an order reaches the submission queue

# Source
 1. market data & order updates from ingest
 2. submission results from the order workers
 3. commands (submit, snapshot, lookups) from other goroutines

# Produce
  - order requests to the order submission queue
  - order and fill records to the journal
*/
package core
