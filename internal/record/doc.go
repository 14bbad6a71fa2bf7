// Package record defines the on-disk record format of a shard.
//
// A shard is a sequence of TFRecord frames:
//
//	uint64  length of payload (little endian)
//	uint32  masked CRC-32C of the length bytes
//	[]byte  payload
//	uint32  masked CRC-32C of the payload
//
// Each payload is a serialized tf.train.Example protobuf carrying the
// encoded image, the encoded segmentation mask and their metadata, so
// shards can be read directly by TensorFlow's TFRecordDataset. The whole
// frame stream may additionally be compressed (see [Compression]).
package record
