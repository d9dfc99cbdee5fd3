package entry

// entry contains the Entry type, its binary record format and the expiration
// policy shared by every component that decides whether a stored record is
// still alive. The format is a FlatBuffers table so that records written by
// one version of the program stay readable by the next.
