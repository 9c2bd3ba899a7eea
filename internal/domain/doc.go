// Package domain holds the value types shared by the dispatch engine:
// recipients, mailing lists, dispatch records and their status machine,
// polymorphic references, and the message and event shapes handed to
// transports and publishers.
//
// Nothing here touches a database, a network or another internal package.
// Methods are limited to pure checks such as Status.CanTransitionTo and
// DispatchRecord.IsDue.
package domain
