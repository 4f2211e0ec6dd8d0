// Package audiotab implements a real-time dataflow engine that streams
// multi-channel numeric signals through a user-authored graph of
// processing nodes, bridging device-native Packets and canonical Frames.
package audiotab
