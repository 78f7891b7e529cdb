/*
Package preview renders a textual overview of a data directory for the agent.

The overview starts with a file tree (a few files per directory, sizes in
lines for text files and bytes otherwise) followed by per-file previews:
CSV files get row/column counts and column statistics, JSON files get an
inferred schema and small text files are inlined. When the detailed
rendition grows past the length limit a simpler one is produced instead.
*/
package preview
