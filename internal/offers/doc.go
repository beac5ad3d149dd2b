// Package offers содержит источник предложений для этапа enrich
// и хранилище предложений в памяти.
package offers
