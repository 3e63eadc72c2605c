package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Chunks() ChunkStore
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// DirectTxRunner runs fn against a store without a surrounding transaction.
// It serves stores that have no transactions, such as the in-memory store.
type DirectTxRunner struct {
	Store ChunkStore
}

func (r DirectTxRunner) WithTx(_ context.Context, fn func(repos TxRepositories) error) error {
	return fn(directRepos{store: r.Store})
}

type directRepos struct {
	store ChunkStore
}

func (d directRepos) Chunks() ChunkStore { return d.store }
