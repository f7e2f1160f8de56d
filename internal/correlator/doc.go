// Package correlator pairs bus replies with the calls waiting for them.
//
// Callers send a method call, Register its serial and Await the reply. The
// dispatch loop passes every method return and error to Deliver. Replies
// that arrive before Register are held as early arrivals for up to
// StaleAfter.
package correlator
