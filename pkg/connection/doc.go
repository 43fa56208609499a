/*
Package connection implements the range-server connection manager (spec
component L4): the live/total server bookkeeping the quorum gate reads
before every recovery phase, the round-robin source the Balance Plan
Authority consults, and the Hyperspace recovery lock a coordinator holds
for the duration of one server's recovery.
*/
package connection
