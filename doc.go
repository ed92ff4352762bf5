/*
Package stdb is the module-side runtime for a SpacetimeDB-style host: it
describes typed tables and reducers, encodes rows into BSATN and moves them
across a narrow handle-based ABI to a host that owns the storage engine.

We implement:

1. Algebraic types, a closed description of every value that crosses the
boundary (primitives, products, sums, arrays, options), collected into a
Typespace.

2. BSATN, the binary encoding of those values: a dynamic codec driven by
AlgebraicType and compiled per-type codecs for Go structs.

3. The handle protocol: Buffer and BufferIter wrap host-owned byte regions
and row cursors, and enforce consume-once and drop-once semantics.

4. Table access: typed insert, delete-by-column, scans, filtered scans and
index creation, layered over the Host interface.

5. Reducers: a registry of reducer functions, the module description handed
to the host, and the per-call ReducerContext with a deterministic RNG.

# Binary encoding

All integers are fixed-width little-endian (8 to 256 bits). Bool is one byte,
0 or 1. Strings and arrays carry a u32 length prefix. Option is a one-byte
tag (0 = absent, 1 = present) followed by the value. Sum is a one-byte tag
(variant index) followed by the variant payload. Product fields are written
back-to-back in declaration order.

Identity is 32 raw bytes, ConnectionID is 16 raw bytes, Timestamp is a u64
count of microseconds since the Unix epoch.

# Host

The Host interface mirrors the host ABI one call per method. On wasip1 the
package binds it to the real host imports; elsewhere, package hostsim provides
an in-process implementation used by tests and the sandbox.
*/
package stdb
