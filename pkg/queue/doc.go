/*
Package queue implements the shared cooperative work pool of spec §4.8.
The recovery and replication code in this repository does not submit
work here: recovery sub-operations fan out with errgroup, and
replication fragment workers run on their own goroutines.

The pool provides four guarantees: thread-group serialization (at most
one item per GroupID runs at a time, FIFO within that group), an urgent
queue drained strictly before the normal one, deadline expiration, and
Quiesce for shutdown.
*/
package queue
