// Package worker implements the single-flight acquisition loop: select an
// item, trigger the bot, scan the conversation, fetch and transcode each
// missing episode, then record completion. Priority requests preempt the
// cursor walk at episode boundaries; rate-limit signals put the whole loop
// into a timed backoff.
package worker
