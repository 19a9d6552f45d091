// Package component defines the interfaces for lifecycle-managed
// infrastructure pieces such as clients, stores, and background workers.
//
// Components are started in registration order, stopped in reverse order,
// and report health through a common shape. The Registry owns the ordering;
// BaseLazyComponent helps components that defer expensive setup until
// first use.
package component
